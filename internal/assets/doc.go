// Package assets provides the stylesheets, browser scripts and page
// templates that rendered documents reference.
//
// # Loader Architecture
//
//	AssetLoader (interface)
//	    │
//	    ├── EmbeddedLoader    - loads from go:embed filesystem (built-in assets)
//	    ├── FilesystemLoader  - loads from custom directory on disk
//	    └── AssetResolver     - combines both with custom-first fallback
//
// # Directory Structure
//
//	{basePath}/
//	├── styles/
//	│   └── {name}.css      # themes.css styles .markdown-body, light and dark
//	├── scripts/
//	│   └── {name}.js       # copy.js (copy buttons), live.js (preview reload)
//	└── templates/
//	    └── {name}.html     # page.html wraps a rendered fragment
//
// # Security
//
// Asset names are validated to prevent path traversal attacks.
// FilesystemLoader resolves symlinks and verifies paths stay within basePath.
package assets
