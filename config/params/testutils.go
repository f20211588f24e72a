package params

import (
	"testing"
)

// SetupTestConfigCleanup preserves configurations allowing to modify them
// within tests without any undesired side effects.
func SetupTestConfigCleanup(t testing.TB) {
	prevConfig := KarstConfig().Copy()
	t.Cleanup(func() {
		OverrideKarstConfig(prevConfig)
	})
}
