// Package config loads the control plane configuration.
//
// Files are HCL (".hcl"), HCL-flavoured JSON (".json") or YAML (".yaml",
// ".yml"). Every block is optional; omitted values fall back to Default.
//
//	gateway {
//	  transport = "nats"
//	  url       = "nats://127.0.0.1:4222"
//	}
//
//	traffic {
//	  flush_interval = "200ms"
//	}
package config
