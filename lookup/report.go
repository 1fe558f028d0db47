package lookup

import (
	"fmt"
	"io"

	"github.com/james-lawrence/kadproviders/internal/errorsx"
	"github.com/james-lawrence/kadproviders/kad"
)

func writestats(w io.Writer, s Snapshot) error {
	_, err := fmt.Fprintf(w, "discovered peers: %d\ncontacted peers: %d\nelapsed: %ds\n", s.Discovered, s.Contacted, s.Seconds())
	return errorsx.Wrap(err, "unable to write statistics")
}

func writeproviders(w io.Writer, providers []kad.Provider) error {
	if _, err := fmt.Fprintf(w, "providers: %d\n", len(providers)); err != nil {
		return errorsx.Wrap(err, "unable to write providers")
	}

	for _, p := range providers {
		if _, err := fmt.Fprintln(w, p.String()); err != nil {
			return errorsx.Wrap(err, "unable to write providers")
		}
	}

	return nil
}
