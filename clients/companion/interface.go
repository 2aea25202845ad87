package companion

import "sunday-assistant/navigation"

// CompanionAPI is a companion app that accepts navigation requests over
// HTTP instead of being driven through a browser.
type CompanionAPI interface {
	navigation.Connector
	navigation.Navigator
}
