package traffic

// Packet is one decoded traffic event as delivered by the backend.
type Packet struct {
	ID            uint64 `json:"id"`
	Timestamp     int64  `json:"timestamp"` // unix milliseconds
	SourceIP      string `json:"sourceIp"`
	DestinationIP string `json:"destinationIp"`
	Protocol      string `json:"protocol"`
	Length        int    `json:"length"`
	Info          string `json:"info"`
	IsIntercepted bool   `json:"isIntercepted"`
}

// Record is a Packet stamped on ingestion.
type Record struct {
	Packet
	Seq uint64 `json:"seq"`
	UID string `json:"uid"`
}

// Snapshot is the read state published to the presentation layer.
type Snapshot struct {
	Active        bool     `json:"isActive"`
	Packets       []Record `json:"packets"`
	JammedPackets []Record `json:"jammedPackets"`
	Speed         float64  `json:"speed"` // bytes per second
}
