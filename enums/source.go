package enums

// SaveSource identifies which client captured a save.
type SaveSource string

const (
	SaveSourceExtension SaveSource = "extension"
	SaveSourceIOS       SaveSource = "ios"
	SaveSourceMobile    SaveSource = "mobile"
	SaveSourceGo        SaveSource = "go"
)

func (s SaveSource) String() string {
	return string(s)
}
