package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttachmentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="manual.pdf"`, AttachmentDisposition("manual.pdf"))
	assert.Equal(t, `attachment; filename="Marengo Studio.exe"`, AttachmentDisposition("Marengo Studio.exe"))
	assert.Equal(t, `attachment; filename="evilname.exe"`, AttachmentDisposition("evil\"\r\nname.exe"))
	assert.Equal(t, "attachment", AttachmentDisposition(""))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "app-linux.tar.gz", BaseName("releases/1.2/app-linux.tar.gz"))
	assert.Equal(t, "doc.pdf", BaseName("doc.pdf"))
}
