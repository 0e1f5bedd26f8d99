package kernel

import (
	"fmt"

	"github.com/cilium/ebpf"
)

// Load reads the XDP object at objectPath and loads it into the
// kernel. The collection must contain exactly one XDP program; its
// name is not assumed.
func (a *Adapter) Load(objectPath string) error {
	collSpec, err := ebpf.LoadCollectionSpec(objectPath)
	if err != nil {
		return fmt.Errorf("load collection spec %s: %w", objectPath, err)
	}

	// The maps are pinned manually after attachment; clear any
	// PIN_BY_NAME annotations so loading does not require a pin path.
	for _, mapSpec := range collSpec.Maps {
		mapSpec.Pinning = ebpf.PinNone
	}

	progName := ""
	for name, progSpec := range collSpec.Programs {
		if progSpec.Type != ebpf.XDP {
			continue
		}
		if progName != "" {
			return fmt.Errorf("object %s contains multiple XDP programs (%s, %s)", objectPath, progName, name)
		}
		progName = name
	}
	if progName == "" {
		return fmt.Errorf("object %s contains no XDP program", objectPath)
	}

	coll, err := ebpf.NewCollection(collSpec)
	if err != nil {
		return fmt.Errorf("load collection %s: %w", objectPath, err)
	}

	a.coll = coll
	a.prog = coll.Programs[progName]

	a.logger.Debug("loaded XDP object", "path", objectPath, "program", progName)
	return nil
}
