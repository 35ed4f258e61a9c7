package core

import "strings"

// Environment is the deployment stage read from ENVIRONMENT.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

var environmentAliases = map[string]Environment{
	"dev":  Development,
	"stg":  Staging,
	"test": Testing,
	"prod": Production,
}

func (e Environment) String() string {
	return string(e)
}

func (e Environment) IsProduction() bool {
	return e == Production
}

// StructuredLogs reports whether logs go out as JSON lines for collection
// rather than to the console writer.
func (e Environment) StructuredLogs() bool {
	return e == Production || e == Staging
}

// ParseEnvironment ignores case and surrounding space and accepts the short
// forms dev, stg, test and prod. Unknown values are Development.
func ParseEnvironment(v string) Environment {
	v = strings.ToLower(strings.TrimSpace(v))
	switch env := Environment(v); env {
	case Development, Staging, Testing, Production:
		return env
	}
	if env, ok := environmentAliases[v]; ok {
		return env
	}
	return Development
}
