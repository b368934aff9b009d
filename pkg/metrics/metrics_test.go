package metrics

import "testing"

func TestStatementKind(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"SELECT 1", "SELECT"},
		{"\n\t  INSERT INTO analytics", "INSERT"},
		{"", "unknown"},
		{"   ", "unknown"},
		{"VERYLONGKEYWORDTHATGOESON", "VERYLONGKEYWORDT"},
	}
	for _, tt := range tests {
		if got := statementKind(tt.sql); got != tt.want {
			t.Errorf("statementKind(%q) = %q, want %q", tt.sql, got, tt.want)
		}
	}
}
