package visitors

import "hash/fnv"

var aliasAdjectives = []string{
	"Amber", "Azure", "Bold", "Brisk", "Calm", "Clever", "Cosmic", "Crimson", "Curious", "Daring",
	"Dusty", "Eager", "Early", "Fancy", "Gentle", "Golden", "Happy", "Hidden", "Humble", "Jolly",
	"Keen", "Lively", "Lucky", "Mellow", "Misty", "Noble", "Polite", "Quiet", "Rapid", "Rustic",
	"Sandy", "Silver", "Sleepy", "Sly", "Sunny", "Swift", "Tidy", "Velvet", "Witty", "Zesty",
}

var aliasNouns = []string{
	"Badger", "Beacon", "Bison", "Canyon", "Comet", "Condor", "Coral", "Cricket", "Delta", "Ember",
	"Falcon", "Fjord", "Gecko", "Harbor", "Heron", "Ibis", "Jaguar", "Lagoon", "Lantern", "Lynx",
	"Maple", "Meadow", "Meteor", "Orca", "Otter", "Pebble", "Pelican", "Puffin", "Quartz", "Raven",
	"Reef", "Sparrow", "Spruce", "Summit", "Tundra", "Walrus", "Willow", "Yak", "Zebra", "Zephyr",
}

// Alias returns a stable display name for a viewer or session id so raw
// event listings never show the identifier itself.
func Alias(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	n := int(h.Sum32())

	return aliasAdjectives[n%len(aliasAdjectives)] + " " + aliasNouns[(n/len(aliasAdjectives))%len(aliasNouns)]
}
