package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
)

// AssetInfo carries asset metadata used by the emission stage.
type AssetInfo struct {
	// Version is an opaque content-identifying string. Equal non-empty
	// versions across builds mean the asset does not need rewriting. An
	// empty version never short-circuits a write.
	Version string
}

// Asset is a named output blob owned by the compilation. Assets are never
// mutated after the compilation is sealed.
type Asset struct {
	source []byte
	Info   AssetInfo
}

func NewAsset(source []byte) *Asset {
	return &Asset{
		source: source,
		Info:   AssetInfo{Version: ContentVersion(source)},
	}
}

// GetSource returns the asset content, or nil for source-less assets which
// are tracked but never written.
func (a *Asset) GetSource() []byte {
	if a == nil {
		return nil
	}
	return a.source
}

// ContentVersion derives the version string for asset content.
func ContentVersion(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}
