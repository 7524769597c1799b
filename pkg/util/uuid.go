package util

import (
	"encoding/json"
	"math/big"

	"github.com/google/uuid"
)

// fingerprintSpace namespaces configuration fingerprints.
var fingerprintSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/jpfielding/htj2k.go/config"))

// HashUUID returns a name-based UUID of value's JSON form, so equal
// configurations share a fingerprint across runs.
func HashUUID(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(fingerprintSpace, raw).String(), nil
}

// OIDUUID returns the DICOM "2.25" UID form of a name-based UUID: the 128-bit
// UUID value in decimal under the 2.25 arc.
func OIDUUID(name string) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
	return "2.25." + new(big.Int).SetBytes(id[:]).String()
}
