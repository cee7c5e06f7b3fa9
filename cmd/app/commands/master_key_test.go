package commands

import (
	"bytes"
	"encoding/base64"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

func TestRunCreateMasterKey(t *testing.T) {
	t.Run("explicit id", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunCreateMasterKey(&out, "prod-2026"))

		match := regexp.MustCompile(`MASTER_KEYS="prod-2026:([^"]+)"`).FindStringSubmatch(out.String())
		require.Len(t, match, 2)

		key, err := base64.StdEncoding.DecodeString(match[1])
		require.NoError(t, err)
		assert.Len(t, key, cryptoDomain.KeySize)
		assert.Contains(t, out.String(), `ACTIVE_MASTER_KEY_ID="prod-2026"`)

		chain, err := cryptoDomain.NewMasterKeyChain("prod-2026:"+match[1], "prod-2026")
		require.NoError(t, err)
		chain.Close()
	})

	t.Run("default id", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunCreateMasterKey(&out, ""))
		assert.True(t, strings.Contains(out.String(), `ACTIVE_MASTER_KEY_ID="master-key-`))
	})

	t.Run("keys differ", func(t *testing.T) {
		var first, second bytes.Buffer
		require.NoError(t, RunCreateMasterKey(&first, "k"))
		require.NoError(t, RunCreateMasterKey(&second, "k"))
		assert.NotEqual(t, first.String(), second.String())
	})
}
