package domain

// Location is a coarse client-reported position. Accuracy is metres;
// Timestamp is client clock, unix ms, and may be skewed.
type Location struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

// Evidence is everything a client submits alongside the signed response that
// is not itself cryptographically authenticated.
type Evidence struct {
	RSSI              int               `json:"rssi"` // dBm, negative
	ResponseLatencyMs int64             `json:"responseLatency,omitempty"`
	Location          *Location         `json:"location,omitempty"`
	WifiNetworks      []string          `json:"wifiNetworks,omitempty"`
	DeviceAttestation []string          `json:"deviceAttestation,omitempty"`
	SessionMeta       map[string]string `json:"organiserSessionMeta,omitempty"`
}

// SignalClass buckets raw RSSI readings.
type SignalClass string

const (
	SignalWeak   SignalClass = "weak"
	SignalMedium SignalClass = "medium"
	SignalStrong SignalClass = "strong"
)

// ProximityFacts is derived from RSSI, computed per response and not stored.
// EstimatedDistanceM is informational only; flag decisions use the class.
type ProximityFacts struct {
	SignalClass        SignalClass `json:"signalClass"`
	EstimatedDistanceM float64     `json:"estimatedDistance"`
}

// BehavioralBaseline is a rolling profile of a participant's response timing,
// maintained with an exponentially weighted moving average.
type BehavioralBaseline struct {
	ParticipantID string  `json:"participantId"`
	MeanLatencyMs float64 `json:"meanLatencyMs"`
	VarianceMs    float64 `json:"varianceMs"`
	Samples       int     `json:"samples"`
	UpdatedAt     int64   `json:"updatedAt"`
}
