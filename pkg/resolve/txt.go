package resolve

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXT record keys.
const (
	TXTKeyProtocol = "proto"
	TXTKeyResource = "res"
	TXTKeyPath     = "path"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records announcing svc.
func EncodeTXT(svc Service) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyProtocol: svc.Protocol,
		TXTKeyResource: strconv.Itoa(svc.Resource),
	}
	if svc.Path != "" {
		txt[TXTKeyPath] = svc.Path
	}
	return txt
}

// DecodeTXT parses the TXT records of an advertised service. The port is
// taken from the SRV record, not the TXT records.
func DecodeTXT(txt TXTRecordMap) (Service, error) {
	var svc Service
	proto, ok := txt[TXTKeyProtocol]
	if !ok || proto == "" {
		return svc, fmt.Errorf("missing TXT key %q", TXTKeyProtocol)
	}
	svc.Protocol = proto

	res, ok := txt[TXTKeyResource]
	if !ok {
		return svc, fmt.Errorf("missing TXT key %q", TXTKeyResource)
	}
	n, err := strconv.Atoi(res)
	if err != nil || n <= 0 || n > 65535 {
		return svc, fmt.Errorf("invalid TXT %s=%q", TXTKeyResource, res)
	}
	svc.Resource = n
	svc.Path = txt[TXTKeyPath]
	return svc, nil
}

// ToStrings returns the records as key=value strings in key order.
func (txt TXTRecordMap) ToStrings() []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// ParseTXT converts key=value strings into a record map. Keys without a
// value map to the empty string.
func ParseTXT(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if !found && k == "" {
			continue
		}
		txt[k] = v
	}
	return txt
}
