package assets

// defaultLoader is the package-level embedded loader.
var defaultLoader = NewEmbeddedLoader()

// LoadStyle loads a built-in CSS file by name.
// Returns ErrStyleNotFound if the style does not exist.
func LoadStyle(name string) (string, error) {
	return defaultLoader.LoadStyle(name)
}

// LoadScript loads a built-in browser script by name.
// Returns ErrScriptNotFound if the script does not exist.
func LoadScript(name string) (string, error) {
	return defaultLoader.LoadScript(name)
}

// LoadTemplate loads a built-in HTML template by name.
// Returns ErrTemplateNotFound if the template does not exist.
func LoadTemplate(name string) (string, error) {
	return defaultLoader.LoadTemplate(name)
}

// MustLoad returns a built-in asset and panics if it is missing.
// Only for names declared in this package, which are embedded at build time.
func MustLoad(load func(string) (string, error), name string) string {
	s, err := load(name)
	if err != nil {
		panic(err)
	}
	return s
}
