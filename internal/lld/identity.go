package lld

// link is a previously discovered entity as seen through its discovery link:
// stored is the prototype template recorded when the link was last refreshed,
// current is the entity's key or name now.
type link struct {
	entityID int64
	stored   string
	current  string
}

// resolveLink finds the existing entity that candidate corresponds to.
//
// First a linked entity whose current key or name equals candidate wins. If
// none does, a linked entity whose stored template, expanded with rec, gives
// its current key or name wins: the prototype changed since, but the entity
// was produced from the same record. Entities already claimed by another
// candidate of the batch are skipped. Returns 0 when nothing matches.
func resolveLink(links []link, candidate string, rec Record, expand func(string, Record) string, claimed map[int64]bool) int64 {
	for _, l := range links {
		if !claimed[l.entityID] && l.current == candidate {
			return l.entityID
		}
	}
	for _, l := range links {
		if !claimed[l.entityID] && expand(l.stored, rec) == l.current {
			return l.entityID
		}
	}
	return 0
}
