package room

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateRoomID returns a 6 character uppercase room id such as "3F9A0C".
// FUNCTIONAL DISCOVERY: ids are the first six hex digits of a v4 uuid,
// short enough to read aloud to an interviewee
func GenerateRoomID() string {
	return strings.ToUpper(uuid.NewString()[:6])
}

// GenerateSessionSecret returns a 6 digit numeric secret such as "042917".
func GenerateSessionSecret() string {
	u := uuid.New()
	n := binary.BigEndian.Uint32(u[10:14]) % 1000000
	return fmt.Sprintf("%06d", n)
}
