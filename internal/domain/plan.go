package domain

// DownloadOptions carries the user-supplied knobs that shape a plan
type DownloadOptions struct {
	Password string
	// CookieSpec is the --cookies-from-browser descriptor, e.g.
	// "chrome:Profile 1". Empty means cookie lookup is explicitly
	// disabled, never silently omitted.
	CookieSpec string
	OutputDir  string
	// Filename is the output name without extension; empty selects the
	// default template for the source
	Filename   string
	QualityCap bool
	Fast       bool
	UseAria2   bool
}

// DownloadPlan fully determines the external downloader invocation.
// Built once per job during analysis and never mutated afterwards.
type DownloadPlan struct {
	Source  Source
	URL     string
	Referer string
	Args    []string
}

// CommandArgs returns the full argument list, including the URL,
// ready to hand to the downloader binary
func (p DownloadPlan) CommandArgs() []string {
	args := make([]string, 0, len(p.Args)+1)
	args = append(args, p.Args...)
	args = append(args, p.URL)
	return args
}
