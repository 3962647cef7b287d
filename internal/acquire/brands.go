package acquire

import "strings"

// brandHosts maps hostname fragments to manufacturer names. Longer fragments
// are listed before any fragment they contain.
var brandHosts = []struct {
	fragment string
	brand    string
}{
	{"canon", "Canon"},
	{"nikon", "Nikon"},
	{"sony", "Sony"},
	{"fujifilm", "Fujifilm"},
	{"panasonic", "Panasonic"},
	{"omsystem", "OM System"},
	{"olympus", "Olympus"},
	{"leica", "Leica"},
	{"hasselblad", "Hasselblad"},
	{"sigma", "Sigma"},
	{"tamron", "Tamron"},
	{"blackmagicdesign", "Blackmagic Design"},
	{"gopro", "GoPro"},
	{"insta360", "Insta360"},
	{"dji", "DJI"},
	{"sennheiser", "Sennheiser"},
	{"shure", "Shure"},
	{"bose", "Bose"},
	{"apple", "Apple"},
	{"samsung", "Samsung"},
	{"logitech", "Logitech"},
	{"lenovo", "Lenovo"},
	{"dell", "Dell"},
	{"asus", "ASUS"},
	{"garmin", "Garmin"},
	{"dyson", "Dyson"},
	{"philips", "Philips"},
	{"manfrotto", "Manfrotto"},
	{"godox", "Godox"},
	{"profoto", "Profoto"},
}

// manufacturerFromHost guesses the brand behind a hostname.
func manufacturerFromHost(host string) string {
	host = strings.ToLower(host)
	for _, b := range brandHosts {
		if strings.Contains(host, b.fragment) {
			return b.brand
		}
	}
	return ""
}
