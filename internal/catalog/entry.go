package catalog

import (
	"fmt"
	"strings"

	"downloadgate/internal/blob"
	licensemodels "downloadgate/internal/license/models"
)

// ChecksumAlgorithm is the only digest the catalog reports.
const ChecksumAlgorithm = "sha256"

// Entry is a resolved catalog file. Display fields never feed back into key
// resolution.
type Entry struct {
	FileID           string
	StorageKey       string
	DisplayName      string
	ContentType      string
	OS               string
	Icon             string
	RequiredProducts []string
	Version          string
	Size             int64
	Checksum         string
}

// RequiresLicense reports whether any product is needed to fetch the file.
func (e *Entry) RequiresLicense() bool {
	return len(e.RequiredProducts) > 0
}

// SizeLabel formats the size in mebibytes with one decimal.
func (e *Entry) SizeLabel() string {
	return fmt.Sprintf("%.1f MB", float64(e.Size)/(1024*1024))
}

// Entitled is true iff every required product is held by the profile.
func Entitled(profile *licensemodels.Profile, entry *Entry) bool {
	if profile == nil || entry == nil {
		return false
	}
	return profile.HasProducts(entry.RequiredProducts)
}

func newEntry(f ManifestFile, obj blob.ObjectInfo) Entry {
	name := f.Name
	if name == "" {
		name = blob.BaseName(f.Key)
	}
	e := Entry{
		FileID:           f.ID,
		StorageKey:       f.Key,
		DisplayName:      name,
		ContentType:      f.Type,
		OS:               f.OS,
		Icon:             f.Icon,
		RequiredProducts: f.Products,
		Version:          f.Version,
		Size:             obj.Size,
		Checksum:         strings.ToLower(f.Checksum),
	}
	if e.Checksum == "" {
		e.Checksum = obj.SHA256
	}
	classify(&e)
	return e
}

// classify fills empty display fields from the file name.
func classify(e *Entry) {
	lower := strings.ToLower(e.DisplayName)
	isPDF := strings.HasSuffix(lower, ".pdf")
	isWindows := strings.Contains(lower, "win")
	isLinux := strings.Contains(lower, "linux")
	isGUI := strings.Contains(lower, "gui")

	if e.ContentType == "" {
		e.ContentType = "Binary"
		if isPDF {
			e.ContentType = "PDF"
		}
	}
	if e.OS == "" {
		switch {
		case isPDF:
			e.OS = "All"
		case isWindows:
			e.OS = "Windows"
		case isLinux:
			e.OS = "Linux"
		default:
			e.OS = "Unknown"
		}
	}
	if e.Icon == "" {
		switch {
		case isPDF:
			e.Icon = "📚"
		case isGUI:
			e.Icon = "🎨"
		case isWindows:
			e.Icon = "🪟"
		case isLinux:
			e.Icon = "🐧"
		default:
			e.Icon = "📦"
		}
	}
}
