package symbols

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		override []string
		want     []string
		wantErr  bool
	}{
		{
			name:    "csv ticker column",
			file:    "stocks.csv",
			content: "Name,Ticker\nApple,AAPL\nMicrosoft, msft\nApple again,AAPL\n,\n",
			want:    []string{"AAPL", "MSFT"},
		},
		{
			name:    "csv with bom",
			file:    "stocks.csv",
			content: "\ufeffTicker\nBTC-USD\n",
			want:    []string{"BTC-USD"},
		},
		{
			name:    "yaml",
			file:    "symbols.yml",
			content: "symbols:\n  - aapl\n  - TSLA\n",
			want:    []string{"AAPL", "TSLA"},
		},
		{
			name:     "override wins",
			file:     "stocks.csv",
			content:  "Ticker\nAAPL\n",
			override: []string{"nvda", " "},
			want:     []string{"NVDA"},
		},
		{
			name:    "missing column",
			file:    "stocks.csv",
			content: "Symbol\nAAPL\n",
			wantErr: true,
		},
		{
			name:    "empty file",
			file:    "stocks.csv",
			content: "",
			wantErr: true,
		},
		{
			name:    "bad yaml",
			file:    "symbols.yaml",
			content: "symbols: [unclosed\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			got, err := Load(path, tt.override)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load("", nil)
	assert.ErrorIs(t, err, ErrNoSymbols)
}

func TestReadCSVRaggedRows(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("Ticker,Sector\nAAPL,Tech\nMSFT\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got)
}
