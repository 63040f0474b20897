// Package resource provides the kernel-wide registry of shared objects.
//
// Capabilities are module-local indices; the objects they name live here.
// Every slot in every module's capability table holds one reference on a
// registry entry, so an object's lifetime is that of its longest holder
// across all modules.
//
// # Object Lifecycle
//
//	Create  - new object, reference count 1, owned by the creating module
//	Acquire - another slot (retain, grant, call translation) references it
//	Release - a slot is freed; at zero the entry is destroyed
//	Revoke  - owner-only, permanent; the entry stays until released
//
// # Registry
//
//	reg := resource.NewRegistry()
//
//	id, err := reg.Create(resource.KindBox, ownerID, value)
//	obj, ok := reg.Get(id)
//	err = reg.Revoke(id, ownerID)
//	destroyed, err := reg.Release(id)
//
// Ids are reused after destruction. Callers must not keep an id after the
// reference they hold on it has been released.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	reg.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    if e.Type == resource.EventDestroyed {
//	        log.Printf("object %d destroyed", e.ID)
//	    }
//	}))
//
// ObserverFunc values are not comparable and cannot be unsubscribed; use a
// pointer type when Unsubscribe is needed.
//
// # Cleanup
//
// Values implementing Dropper are dropped when their last reference is
// released, or when the registry is closed.
package resource
