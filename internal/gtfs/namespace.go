package gtfs

// Namespace prefixes a raw feed identifier with its agency so multiple
// operators can share the same tables without collisions. It must be applied
// to an identifier everywhere it appears (definition and every reference) so
// joins keep resolving after the rewrite.
func Namespace(agencyID, rawID string) string {
	if rawID == "" {
		// absent references (e.g. parent_station) stay absent
		return ""
	}
	return agencyID + "_" + rawID
}
