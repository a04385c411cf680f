package protocol

// Effects is the lamp's fixed animation catalog. An effect's wire index is
// its position in this list; index 0 ("Off") stops the running animation.
var Effects = []string{
	"Off",
	"Random",
	"Rainbow",
	"Rainbow Slow",
	"Fusion",
	"Pulse",
	"Wave",
	"Chill",
	"Action",
	"Forest",
	"Summer",
}

// EffectIndex returns the wire index for an effect name. Unknown names
// resolve to 0, the "Off" entry.
func EffectIndex(name string) uint8 {
	for i, e := range Effects {
		if e == name {
			return uint8(i)
		}
	}
	return 0
}

// EffectName returns the catalog entry for a wire index. Out-of-range
// indexes resolve to "Off"; the lamp reports such indexes for animations
// this catalog predates.
func EffectName(index uint8) string {
	if int(index) < len(Effects) {
		return Effects[index]
	}
	return Effects[0]
}
