// Package page abstracts the live document the extractor drives. The real
// implementation sits on top of chromedp (internal/browser); tests substitute
// an in-memory fake so the extraction state machine runs without a browser.
package page

import "context"

// Element is one node in the live document. Structural lookups (Closest,
// Parent, QueryFirst) operate on the document as it is at call time; an
// element obtained before a page mutation may no longer resolve afterwards,
// which surfaces as an error the caller is expected to tolerate.
type Element interface {
	// Text returns the element's full visible text content.
	Text(ctx context.Context) (string, error)

	// Click triggers the element's default activation.
	Click(ctx context.Context) error

	// Visible reports whether the element takes part in layout.
	Visible(ctx context.Context) (bool, error)

	// Disabled reports whether the element is disabled.
	Disabled(ctx context.Context) (bool, error)

	// QueryFirst finds the first descendant matching the selector.
	QueryFirst(ctx context.Context, selector string) (Element, bool, error)

	// Closest walks up from the element to the nearest ancestor (or self)
	// matching the selector.
	Closest(ctx context.Context, selector string) (Element, bool, error)

	// Parent returns the element's parent element, if any.
	Parent(ctx context.Context) (Element, bool, error)
}

// Page is the minimal surface the extractor needs from a live document.
type Page interface {
	// URL returns the document's current location.
	URL(ctx context.Context) (string, error)

	// Query returns all elements matching the selector, in document order.
	Query(ctx context.Context, selector string) ([]Element, error)

	// QueryFirst returns the first element matching the selector.
	QueryFirst(ctx context.Context, selector string) (Element, bool, error)

	// ChildCount returns the number of child elements of the first node
	// matching the selector, or 0 when the node is absent.
	ChildCount(ctx context.Context, selector string) (int, error)
}
