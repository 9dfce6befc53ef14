package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestFS_DerivesContactHouseholdKey(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) < 2 || names[0] != "00001_outreach_core.sql" {
		t.Fatalf("unexpected migrations %v", names)
	}

	raw, err := fs.ReadFile(FS, "00002_contact_household_key.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	up, down, ok := strings.Cut(string(raw), "-- +goose Down")
	if !ok {
		t.Fatalf("missing down section")
	}
	for _, want := range []string{
		"BEFORE INSERT OR UPDATE OF address, household_key ON contact",
		"household_key_for(NEW.address)",
		"UPDATE contact SET household_key = household_key_for(address)",
	} {
		if !strings.Contains(up, want) {
			t.Fatalf("up section missing %q", want)
		}
	}
	if !strings.Contains(down, "DROP TRIGGER IF EXISTS contact_household_key ON contact") {
		t.Fatalf("down section does not drop the trigger")
	}
}
