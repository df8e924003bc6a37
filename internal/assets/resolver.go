package assets

import "errors"

// AssetResolver layers a user asset directory over the embedded assets.
// An asset missing from the directory comes from the embedded set; any
// other error from the directory is returned as is.
type AssetResolver struct {
	custom   AssetLoader // nil without a base path
	embedded AssetLoader
}

// NewAssetResolver creates an AssetResolver over customBasePath, which
// must be a readable directory when set. Empty selects the embedded assets
// alone.
func NewAssetResolver(customBasePath string) (*AssetResolver, error) {
	r := &AssetResolver{embedded: NewEmbeddedLoader()}
	if customBasePath == "" {
		return r, nil
	}

	fsLoader, err := NewFilesystemLoader(customBasePath)
	if err != nil {
		return nil, err
	}
	r.custom = fsLoader
	return r, nil
}

// LoadStyle implements AssetLoader.
func (r *AssetResolver) LoadStyle(name string) (string, error) {
	return r.resolve(func(l AssetLoader) (string, error) { return l.LoadStyle(name) })
}

// LoadScript implements AssetLoader.
func (r *AssetResolver) LoadScript(name string) (string, error) {
	return r.resolve(func(l AssetLoader) (string, error) { return l.LoadScript(name) })
}

// LoadTemplate implements AssetLoader.
func (r *AssetResolver) LoadTemplate(name string) (string, error) {
	return r.resolve(func(l AssetLoader) (string, error) { return l.LoadTemplate(name) })
}

// CustomStyle returns the user's version of a stylesheet. ok is false when
// no base path is configured or the directory has no such style, so the
// caller keeps the embedded one.
func (r *AssetResolver) CustomStyle(name string) (css string, ok bool, err error) {
	if r.custom == nil {
		return "", false, nil
	}
	css, err = r.custom.LoadStyle(name)
	switch {
	case err == nil:
		return css, true, nil
	case isNotFoundError(err):
		return "", false, nil
	default:
		return "", false, err
	}
}

// HasCustomLoader reports whether a base path is configured.
func (r *AssetResolver) HasCustomLoader() bool {
	return r.custom != nil
}

func (r *AssetResolver) resolve(load func(AssetLoader) (string, error)) (string, error) {
	if r.custom != nil {
		content, err := load(r.custom)
		if err == nil || !isNotFoundError(err) {
			return content, err
		}
	}
	return load(r.embedded)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrStyleNotFound) ||
		errors.Is(err, ErrScriptNotFound) ||
		errors.Is(err, ErrTemplateNotFound)
}

var _ AssetLoader = (*AssetResolver)(nil)
