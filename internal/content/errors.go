package content

import "errors"

// Load failures are fatal for the one content item only; callers report
// them and continue loading the rest of the site.
var (
	// ErrMalformedFrontMatter indicates the delimited front matter block
	// could not be parsed as TOML or YAML.
	ErrMalformedFrontMatter = errors.New("malformed front matter")

	// ErrMissingRequiredField indicates a required front matter field is
	// absent: date, title and url for posts, title for pages.
	ErrMissingRequiredField = errors.New("missing required front matter field")

	// ErrInvalidDate indicates a post date that is present but not in
	// YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")

	// ErrUnsupportedExtension indicates a page source with an extension
	// the loader cannot handle.
	ErrUnsupportedExtension = errors.New("unsupported page extension")
)
