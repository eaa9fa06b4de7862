package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Run("disabled returns noop", func(t *testing.T) {
		provider, err := Setup(Config{})
		require.NoError(t, err)
		assert.IsType(t, &NoopProvider{}, provider)
		assert.NoError(t, provider.Count(Pages, 1, nil))
	})

	t.Run("enabled returns datadog", func(t *testing.T) {
		provider, err := Setup(Config{Datadog: DatadogConfig{Enabled: true, Addr: "localhost:8125", Namespace: "test."}})
		require.NoError(t, err)
		dd, ok := provider.(*DatadogProvider)
		require.True(t, ok)
		assert.NoError(t, dd.Close())
	})
}
