package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"balancio/internal/ledger/ledgertest"
	"balancio/internal/storage"
)

const testEmail = "ada@example.com"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "data", "balancio.db")
}

func seedUser(t *testing.T, db string) {
	t.Helper()
	store, err := storage.NewSQLiteRepository(db)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.CreateUser(context.Background(), ledgertest.User("u-1", testEmail)))
}

func writeStatement(t *testing.T, posted time.Time, entries ...string) string {
	t.Helper()
	var list string
	for i, amount := range entries {
		list += fmt.Sprintf("<STMTTRN>\n<TRNTYPE>OTHER\n<DTPOSTED>%s\n<TRNAMT>%s\n<FITID>CLI-%03d\n<NAME>ENTRY %d\n</STMTTRN>\n",
			posted.Format("20060102")+"120000[0:GMT]", amount, i+1, i+1)
	}
	body := `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20250315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>EUR
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>IT60X0542811101000000123456
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20250101120000[0:GMT]
<DTEND>20251231120000[0:GMT]
` + list + `</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>0.00
<DTASOF>20250331120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`
	path := filepath.Join(t.TempDir(), "statement.ofx")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMigrate(t *testing.T) {
	db := tempDB(t)

	out, err := run(t, "--db", db, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")

	out, err = run(t, "--db", db, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")
	assert.NotContains(t, out, "dirty")

	_, err = run(t, "--db", db, "migrate", "down", "--steps", "0")
	assert.ErrorContains(t, err, "rollback steps must be positive")

	out, err = run(t, "--db", db, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0")
}

func TestUsersList(t *testing.T) {
	db := tempDB(t)

	out, err := run(t, "--db", db, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no users registered")

	seedUser(t, db)
	out, err = run(t, "--db", db, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "1 users")
	assert.Contains(t, out, testEmail)
	assert.Contains(t, out, "Europe/Rome")
}

func TestImportOFX(t *testing.T) {
	db := tempDB(t)
	seedUser(t, db)
	path := writeStatement(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), "-25.50", "1500.00", "-4.20")

	out, err := run(t, "--db", db, "import", "ofx", testEmail, path, "--batch", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 of 3 transactions, skipped 0")

	out, err = run(t, "--db", db, "import", "ofx", "ADA@example.com", path)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 0 of 3 transactions, skipped 3")
}

func TestImportOFX_Errors(t *testing.T) {
	db := tempDB(t)
	seedUser(t, db)
	path := writeStatement(t, time.Now().UTC(), "-1.00")

	_, err := run(t, "--db", db, "import", "ofx", "nobody@example.com", path)
	assert.ErrorContains(t, err, `no user with email "nobody@example.com"`)

	_, err = run(t, "--db", db, "import", "ofx", testEmail, path, "--batch", "0")
	assert.ErrorContains(t, err, "--batch must be positive")

	_, err = run(t, "--db", db, "import", "ofx", testEmail, filepath.Join(t.TempDir(), "missing.ofx"))
	assert.Error(t, err)

	_, err = run(t, "--db", db, "import", "ofx", testEmail)
	assert.Error(t, err)
}

func TestBudgetSetAndStatus(t *testing.T) {
	db := tempDB(t)
	seedUser(t, db)

	out, err := run(t, "--db", db, "budget", "status", testEmail)
	require.NoError(t, err)
	assert.Contains(t, out, "no monthly budget configured")

	path := writeStatement(t, time.Now().UTC(), "-90.00")
	_, err = run(t, "--db", db, "import", "ofx", testEmail, path)
	require.NoError(t, err)

	out, err = run(t, "--db", db, "budget", "set", testEmail, "--limit", "100", "--currency", "eur")
	require.NoError(t, err)
	assert.Contains(t, out, "budget set to 100.00 EUR (warning 80%, critical 95%)")

	out, err = run(t, "--db", db, "budget", "status", testEmail)
	require.NoError(t, err)
	assert.Contains(t, out, "Spent      90.00 EUR")
	assert.Contains(t, out, "90.00% (warning)")
	assert.Contains(t, out, "Remaining  10.00 EUR")
}

func TestBudgetSet_RejectsBadLimit(t *testing.T) {
	db := tempDB(t)
	seedUser(t, db)

	_, err := run(t, "--db", db, "budget", "set", testEmail, "--limit", "abc")
	assert.ErrorContains(t, err, `invalid --limit "abc"`)

	_, err = run(t, "--db", db, "budget", "set", testEmail, "--limit", "-5")
	assert.ErrorContains(t, err, "budget limit cannot be negative")

	_, err = run(t, "--db", db, "budget", "set", testEmail)
	assert.Error(t, err)
}

func TestSheetsExport_RequiresConfiguration(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := run(t, "--db", tempDB(t), "sheets", "export", testEmail)
	assert.ErrorContains(t, err, "GOOGLE_SPREADSHEET_ID is required")
}

func TestConfigFile(t *testing.T) {
	db := tempDB(t)
	cfg := filepath.Join(t.TempDir(), "balancioctl.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("database:\n  path: "+db+"\n"), 0o600))

	out, err := run(t, "--config", cfg, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")
	assert.FileExists(t, db)

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "migrate", "status")
	assert.ErrorContains(t, err, "read config")
}

func TestEnvironmentOverridesDefaultPath(t *testing.T) {
	db := tempDB(t)
	t.Setenv("BALANCIO_DATABASE_PATH", db)

	out, err := run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")
	assert.FileExists(t, db)
}
