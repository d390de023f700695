package secret

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const dollarSentinel = "\x00STAFFCACHE_DOLLAR\x00"

// LookupFunc finds the value of a variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ExpandEnvStrict expands ${VAR} and $VAR in s from the environment.
// See Expand.
func ExpandEnvStrict(s string) (string, error) {
	return Expand(s, os.LookupEnv)
}

// Expand expands ${VAR} and $VAR in s using lookup. Every ${VAR} must be
// defined or Expand fails with ErrMissingEnv naming all missing variables.
// A bare $VAR that is undefined expands to the empty string. $$ emits $.
func Expand(s string, lookup LookupFunc) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	var missing []string
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		key := match[1]
		if _, ok := lookup(key); !ok && !slices.Contains(missing, key) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	s = os.Expand(s, func(key string) string {
		v, _ := lookup(key)
		return v
	})
	return strings.ReplaceAll(s, dollarSentinel, "$"), nil
}
