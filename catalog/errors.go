package catalog

import "errors"

// ErrCatalogRefresh wraps every failure of a background refresh. The cache
// absorbs it: the previous snapshot stays in place.
var ErrCatalogRefresh = errors.New("catalog: refresh failed")

// ErrNoLogo is returned when the CMS response carries no logo asset.
var ErrNoLogo = errors.New("catalog: no logo asset in response")
