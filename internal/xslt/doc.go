// Package xslt compiles XSLT 1.0 stylesheets into immutable Stylesheet values
// and runs them over xmltree documents. A Stylesheet may be shared between
// goroutines; every run gets its own Transformer with private parameter
// bindings, loader, global variable values and document cache.
//
// The supported subset covers template rules with modes and priorities,
// named templates, parameters and variables, the common instructions,
// literal result elements with attribute value templates, namespace
// aliasing, whitespace stripping and the xml, html and text output methods.
// Anything else fails compilation with ErrUnsupported.
package xslt
