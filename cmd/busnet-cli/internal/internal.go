package internal

import (
	"fmt"
	"strconv"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/busnet/pkg/routing"
)

var log = logging.MustGetLogger("busnet-cli")

// Catch handles errors for busnet-cli commands packages
func Catch(err error, msgs ...string) {
	if err != nil {
		if len(msgs) > 0 {
			log.Fatalln(append(msgs, err.Error()))
		} else {
			log.Fatalln(err)
		}
	}
}

// ParseAddr parses a logical node address.
func ParseAddr(name, v string) routing.Addr {
	a, err := strconv.ParseUint(v, 0, 8)
	Catch(err, fmt.Sprintf("failed to parse <%s>:", name))
	addr := routing.Addr(a)
	if !addr.Valid() {
		Catch(fmt.Errorf("address %d out of range 0..%d", a, routing.MaxAddr), fmt.Sprintf("failed to parse <%s>:", name))
	}
	return addr
}
