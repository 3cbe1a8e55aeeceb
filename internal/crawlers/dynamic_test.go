package crawlers

import "testing"

func TestCheckDocumentStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"200", 200, false},
		{"204", 204, false},
		{"未收到响应", 0, true},
		{"重定向未跟随", 302, true},
		{"404页面", 404, true},
		{"500页面", 500, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkDocumentStatus(tt.status)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkDocumentStatus(%d) error = %v, wantErr %v", tt.status, err, tt.wantErr)
			}
		})
	}
}
