package pin

import (
	"errors"
	"testing"

	"pinbot/internal/storage"
)

func TestValidateContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		media   storage.MediaType
		fileID  string
		wantErr bool
	}{
		{name: "plain text", content: "hello", media: storage.MediaNone},
		{name: "allowed markup", content: "<b>hi</b> <a href=\"https://example.org\">link</a>"},
		{name: "nested markup", content: "<b><i>both</i></b>"},
		{name: "photo with caption", content: "caption", media: storage.MediaPhoto, fileID: "AgAC123"},
		{name: "photo without caption", media: storage.MediaPhoto, fileID: "AgAC123"},
		{name: "empty without media", content: "   ", wantErr: true},
		{name: "media without file id", content: "x", media: storage.MediaVideo, wantErr: true},
		{name: "file id without media", content: "x", fileID: "AgAC123", wantErr: true},
		{name: "unknown media type", content: "x", media: "sticker", fileID: "f", wantErr: true},
		{name: "disallowed tag", content: "<script>x</script>", wantErr: true},
		{name: "unclosed tag", content: "<b>bold", wantErr: true},
		{name: "mismatched nesting", content: "<b><i>x</b></i>", wantErr: true},
		{name: "unterminated tag", content: "a < b", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateContent(tt.content, tt.media, tt.fileID)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidContent) {
					t.Fatalf("expected ErrInvalidContent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
