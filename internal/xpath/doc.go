// Package xpath compiles and evaluates XPath 1.0 expressions and XSLT match
// patterns over xmltree documents. Expressions are compiled once against a
// namespace context and may be evaluated concurrently.
package xpath
