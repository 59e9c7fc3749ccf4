package pandora

// Tier is the subscriber class an account belongs to. It selects which
// fixed partner credentials the client authenticates with and gates the
// highest audio quality.
type Tier int

const (
	TierStandard Tier = iota
	TierPremium
)

func (t Tier) String() string {
	switch t {
	case TierPremium:
		return "premium"
	default:
		return "standard"
	}
}

// PartnerCredentials identifies the calling application to the service.
// There are exactly two fixed variants, one per tier; a credential set is
// immutable and replaced wholesale when the tier changes.
type PartnerCredentials struct {
	Tier        Tier
	RPCHost     string
	DeviceModel string
	Username    string
	Password    string
	DecryptKey  string
	EncryptKey  string
}

var standardCredentials = PartnerCredentials{
	Tier:        TierStandard,
	RPCHost:     "tuner.pandora.com",
	DeviceModel: "android-generic",
	Username:    "android",
	Password:    "AC7IBG09A3DTSYM4R41UJWL07VLN8JI7",
	DecryptKey:  "R=U!LH$O2B#",
	EncryptKey:  "6#26FRL$ZWD",
}

var premiumCredentials = PartnerCredentials{
	Tier:        TierPremium,
	RPCHost:     "internal-tuner.pandora.com",
	DeviceModel: "D01",
	Username:    "pandora one",
	Password:    "TVCKIBGS9AO9TSYLNNFUML0743LH82D",
	DecryptKey:  "U#IO$RZPAB%VX2",
	EncryptKey:  "2%3WCL*JU$MP]4",
}

// CredentialsForTier returns the fixed partner credential set for a tier.
func CredentialsForTier(tier Tier) PartnerCredentials {
	if tier == TierPremium {
		return premiumCredentials
	}
	return standardCredentials
}
