package autoscan

// Setting keys understood by the bundled collaborators. Settings remain an
// opaque payload to the orchestrator; these names exist so that callers and
// collaborators agree on spelling.
const (
	SettingIncludeApex      = "include_apex"
	SettingUseCrtSh         = "use_crtsh"
	SettingUseHackerTarget  = "use_hackertarget"
	SettingUseAlienVault    = "use_alienvault"
	SettingUseCertSpotter   = "use_certspotter"
	SettingUseWhois         = "use_whois"
	SettingProbeConcurrency = "probe_concurrency"
	SettingProbeRateLimit   = "probe_rate_limit"
	SettingPortRange        = "port_range"
	SettingPortTimeoutMS    = "port_timeout_ms"
	SettingContentTools     = "content_tools"
	SettingContentMaxPages  = "content_max_pages"
	SettingVulnSeverity     = "vuln_severity"
	SettingVulnSecrets      = "vuln_detect_secrets"
	SettingVulnRateLimit    = "vuln_rate_limit"
)

// DefaultSettings returns the settings applied when a start request omits them.
func DefaultSettings() Payload {
	return Payload{
		SettingIncludeApex:      true,
		SettingUseCrtSh:         true,
		SettingUseHackerTarget:  true,
		SettingUseAlienVault:    true,
		SettingUseCertSpotter:   true,
		SettingUseWhois:         true,
		SettingProbeConcurrency: 50,
		SettingProbeRateLimit:   100,
		SettingPortRange:        "top-100",
		SettingPortTimeoutMS:    1500,
		SettingContentTools:     []string{"links", "robots", "sitemap"},
		SettingContentMaxPages:  25,
		SettingVulnSeverity:     "medium,high,critical",
		SettingVulnSecrets:      true,
		SettingVulnRateLimit:    150,
	}
}
