package packet

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

var (
	errInvalidUTF        = errors.New("invalid UTF-8 string")
	errContainsWildCards = errors.New("topic name contains wildcards")
	errEmptyTopic        = errors.New("empty topic")
)

// checkUTF8 validates an MQTT UTF-8 encoded string. Go's decoder already refuses surrogates.
func checkUTF8(str string, checkWildCards bool) error {
	for i := 0; i < len(str); {
		if str[i] == 0 { // [MQTT-1.5.3-2]
			return errInvalidUTF
		}

		if checkWildCards && (str[i] == '+' || str[i] == '#') { // [MQTT-3.3.2-2]
			return errContainsWildCards
		} else if str[i]&0x80 == 0 {
			i++
		} else {
			r, size := utf8.DecodeRuneInString(str[i:])
			if r == utf8.RuneError && size == 1 {
				return errInvalidUTF
			}
			i += size
		}
	}
	return nil
}

// CheckTopicName validates the topic of an outgoing PUBLISH.
func CheckTopicName(topic string) error {
	if topic == "" {
		return errEmptyTopic
	}
	return checkUTF8(topic, true)
}

// CheckTopicFilter validates a subscription filter: '#' only as the last
// level and wildcards only as whole levels.
func CheckTopicFilter(filter string) error {
	if filter == "" {
		return errEmptyTopic
	}
	if err := checkUTF8(filter, false); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, l := range levels {
		if strings.Contains(l, "#") && (l != "#" || i != len(levels)-1) {
			return errors.Errorf("invalid use of '#' in filter %q", filter)
		}
		if strings.Contains(l, "+") && l != "+" {
			return errors.Errorf("invalid use of '+' in filter %q", filter)
		}
	}
	return nil
}
