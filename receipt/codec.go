package receipt

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode is Core Deterministic Encoding (RFC 8949 §4.2): the same receipt
// always encodes to the same bytes, so its CID and signature are stable.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Hashes serialize as hex text via MarshalText.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("receipt: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("receipt: CBOR decoder initialization failed: " + err.Error())
	}
}
