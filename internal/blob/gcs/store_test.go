package gcs

import "testing"

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://my-bucket/uploads/u1/a.pdf", "my-bucket", "uploads/u1/a.pdf", false},
		{"gs://my-bucket/a.pdf", "my-bucket", "a.pdf", false},
		{"gs://my-bucket", "", "", true},
		{"gs://my-bucket/", "", "", true},
		{"s3://bucket/a.pdf", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI() = %q, %q, want %q, %q", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("gs://bucket/folder/file.pdf"); got != "file.pdf" {
		t.Errorf("FileName() = %q, want file.pdf", got)
	}
}
