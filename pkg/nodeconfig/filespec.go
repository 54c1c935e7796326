package nodeconfig

// FileOptions mirrors the recognized top-level configuration-file keys from
// spec.md §6. Config-file parsing itself is an out-of-scope external
// collaborator (spec.md §1); this struct only names the parse target so
// callers that do own a parser have a stable shape to populate, grounded on
// the teacher's plain-JSON-struct convention in internal/app/config.go
// (AppConfig) generalized from "encrypted wallet settings" to "plaintext
// node operating config"; no encryption is applied here.
type FileOptions struct {
	Host      string  `json:"host"`
	Port      int     `json:"port"`
	MaxFee    float64 `json:"maxfee"`    // default 0
	Consensus int     `json:"consensus"` // default 1, >= 1
	TimeoutS  int     `json:"timeout"`   // default 30
}

// DefaultFileOptions returns the documented defaults from spec.md §6.
func DefaultFileOptions() FileOptions {
	return FileOptions{MaxFee: 0, Consensus: 1, TimeoutS: 30}
}

// PluginFileOptions mirrors a single plugin's configuration-file section.
type PluginFileOptions struct {
	Parameters         []string `json:"parameters"` // comma-separated in the file: string|bool|int|double
	Fee                float64  `json:"fee"`
	ClientRequestLimit int      `json:"clientrequestlimit"` // -1 = unlimited
	Disabled           bool     `json:"disabled"`
	Private            *PrivateBackend `json:"-"`
}

// PublicConfigView is the public JSON shape for a node's config, exactly as
// enumerated in spec.md §6.
type PublicConfigView struct {
	NodePubKey     string                  `json:"nodepubkey"`
	Score          int                     `json:"score"`
	Banned         bool                    `json:"banned"`
	PaymentAddress string                  `json:"paymentaddress"`
	SPVWallets     []string                `json:"spvwallets"`
	SPVConfigs     []SPVWalletConfig       `json:"spvconfigs"`
	FeeDefault     float64                 `json:"feedefault"`
	Fees           map[string]float64      `json:"fees"`
	Services       map[string]ServiceView  `json:"services"`
}

// SPVWalletConfig is one entry of PublicConfigView.SPVConfigs.
type SPVWalletConfig struct {
	SPVWallet string             `json:"spvwallet"`
	Commands  []SPVCommandConfig `json:"commands"`
}

// SPVCommandConfig is one wallet-command advertisement within a wallet config.
type SPVCommandConfig struct {
	Command        string  `json:"command"`
	Fee            float64 `json:"fee"`
	PaymentAddress string  `json:"paymentaddress"`
	RequestLimit   int64   `json:"requestlimit"`
	FetchLimit     int     `json:"fetchlimit"`
	Timeout        int     `json:"timeout"`
	Disabled       bool    `json:"disabled"`
}

// ServiceView is a plugin's public advertisement within PublicConfigView.
type ServiceView struct {
	Parameters     []string `json:"parameters"`
	Fee            float64  `json:"fee"`
	PaymentAddress string   `json:"paymentaddress"`
	RequestLimit   int64    `json:"requestlimit"`
	FetchLimit     int      `json:"fetchlimit"`
	Timeout        int      `json:"timeout"`
	Disabled       bool     `json:"disabled"`
}

// ToPublicView renders a NodeConfig as the wire shape clients receive from
// xrGetConfig replies (spec.md §6).
func ToPublicView(nodePubKey string, score int, banned bool, paymentAddress string, cfg NodeConfig) PublicConfigView {
	services := make(map[string]ServiceView, len(cfg.Plugins))
	for name, p := range cfg.Plugins {
		services[name] = ServiceView{
			Parameters:     p.Parameters,
			Fee:            p.Fee,
			PaymentAddress: p.PaymentAddress,
			RequestLimit:   int64(p.ClientRequestLimit),
			Disabled:       p.Disabled,
		}
	}
	return PublicConfigView{
		NodePubKey:     nodePubKey,
		Score:          score,
		Banned:         banned,
		PaymentAddress: paymentAddress,
		FeeDefault:     cfg.DefaultFee,
		Fees:           cfg.FeeSchedule,
		Services:       services,
	}
}
