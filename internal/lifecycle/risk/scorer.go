// Package risk scores submissions for fraud and decides whether an
// automatic decision may be applied without a human.
package risk

type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

const (
	SignalMissingDevice      = "missing_device_fingerprint"
	SignalMissingIP          = "missing_ip_address"
	SignalCountryMismatch    = "ip_country_mismatch"
	SignalAnonymizingNetwork = "anonymizing_network"
	SignalElevatedVelocity   = "elevated_velocity"
	SignalHighVelocity       = "high_velocity"
	SignalSharedDevice       = "shared_device"
	SignalVelocityUnknown    = "velocity_unavailable"
)

var weights = map[string]int{
	SignalMissingDevice:      15,
	SignalMissingIP:          10,
	SignalCountryMismatch:    20,
	SignalAnonymizingNetwork: 30,
	SignalElevatedVelocity:   20,
	SignalHighVelocity:       45,
	SignalSharedDevice:       15,
	SignalVelocityUnknown:    10,
}

const (
	elevatedVelocityThreshold = 3
	highVelocityThreshold     = 5
)

// SubmissionContext is the device and network metadata captured at submission.
type SubmissionContext struct {
	DeviceFingerprint string `json:"deviceFingerprint"`
	IPAddress         string `json:"ipAddress"`
	IPCountry         string `json:"ipCountry"`
	DeclaredCountry   string `json:"declaredCountry"`
	Anonymizing       bool   `json:"anonymizing"`
}

// Velocity counts applications in the trailing window, including the current one.
type Velocity struct {
	Identity int  `json:"identity"`
	Device   int  `json:"device"`
	IP       int  `json:"ip"`
	Unknown  bool `json:"unknown,omitempty"`
}

func (v Velocity) max() int {
	m := v.Identity
	if v.Device > m {
		m = v.Device
	}
	if v.IP > m {
		m = v.IP
	}
	return m
}

type Score struct {
	Value   int      `json:"riskScore"`
	Band    Band     `json:"band"`
	Signals []string `json:"fraudSignals"`
}

// Evaluate is deterministic: the same context and velocity always produce
// the same score and signal order.
func Evaluate(sc SubmissionContext, v Velocity) Score {
	signals := []string{}

	if sc.DeviceFingerprint == "" {
		signals = append(signals, SignalMissingDevice)
	}
	if sc.IPAddress == "" {
		signals = append(signals, SignalMissingIP)
	}
	if sc.IPCountry != "" && sc.DeclaredCountry != "" && sc.IPCountry != sc.DeclaredCountry {
		signals = append(signals, SignalCountryMismatch)
	}
	if sc.Anonymizing {
		signals = append(signals, SignalAnonymizingNetwork)
	}

	switch {
	case v.Unknown:
		signals = append(signals, SignalVelocityUnknown)
	case v.max() >= highVelocityThreshold:
		signals = append(signals, SignalHighVelocity)
	case v.max() >= elevatedVelocityThreshold:
		signals = append(signals, SignalElevatedVelocity)
	}
	if !v.Unknown && v.Device > v.Identity && v.Device > 1 {
		signals = append(signals, SignalSharedDevice)
	}

	score := 0
	for _, s := range signals {
		score += weights[s]
	}
	score = clamp(score)
	return Score{Value: score, Band: BandFor(score), Signals: signals}
}

// BandFor: <50 low, 50-79 medium, >=80 high. Lower bounds are inclusive.
func BandFor(score int) Band {
	switch {
	case score >= 80:
		return BandHigh
	case score >= 50:
		return BandMedium
	default:
		return BandLow
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
