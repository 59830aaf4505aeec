package xfer

import (
	"context"
	"sort"

	"github.com/griddist/core/internal/handlers"
	"github.com/griddist/core/internal/objmgr"
	"github.com/griddist/core/pkg/xerrors"
)

// Stats summarizes one XferEnd round.
type Stats struct {
	Sent        int
	Received    int
	Deleted     int
	PrioChanged int
	Pruned      int
}

type acceptedObject struct {
	hdr     *objmgr.Header
	obj     any
	newness handlers.Newness
	oldPrio objmgr.Priority
	wo      wireObject
}

// XferEnd closes the command bracket and runs the transfer pipeline:
// optional delete pruning, coupling-closure estimate, message
// planning and packing, local deletes, local priority changes,
// receive-and-accept of incoming objects, pointer localization,
// consistency handlers, a compressed coupling message, and finally
// an interface rebuild.
//
// Every processor participating in the run must call XferEnd once
// for every XferBegin, even with no queued commands: the low-comm
// rounds below are bulk-synchronous barriers across every processor.
func (e *Engine) XferEnd(ctx context.Context) (*Stats, error) {
	if err := e.requireMode(ModeCmds); err != nil {
		e.log.Error("XferEnd: bad mode", "mode", e.mode.String())
		return nil, err
	}
	e.mode = ModeBusy
	defer func() { e.mode = ModeIdle }()

	stats := &Stats{}

	// 1. Gather sorted command arrays. Deletes keep their original
	// issue order (dependent-object deletes inside XFER-DELETE
	// handlers must replay in the user's sequence); copies and
	// priority changes are processed as an unordered set, gid-sorted
	// purely so message packing is deterministic.
	copyOrder := append([]copyKey(nil), e.copyOrder...)
	sort.Slice(copyOrder, func(i, j int) bool {
		if copyOrder[i].GID != copyOrder[j].GID {
			return copyOrder[i].GID < copyOrder[j].GID
		}
		return copyOrder[i].Dest < copyOrder[j].Dest
	})
	deleteOrder := append([]objmgr.GID(nil), e.deleteOrder...)
	prioOrder := append([]objmgr.GID(nil), e.prioOrder...)
	sort.Slice(prioOrder, func(i, j int) bool { return prioOrder[i] < prioOrder[j] })

	outCoupling := make(map[int][]couplingNotice)

	// 2. Optional pruning phase.
	pruned := make(map[objmgr.GID]bool)
	if e.prune {
		sendSets := make(map[int][]objmgr.GID)
		for _, k := range copyOrder {
			sendSets[k.Dest] = append(sendSets[k.Dest], k.GID)
		}
		for dest, gids := range sendSets {
			m := e.layer.NewSendMsg(dest, msgTypePruning)
			putChunk(m, encodeGob(gids))
			m.Freeze()
		}
		recv, err := e.layer.Communicate(ctx, msgTypePruning)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeProtocol, "xfer: pruning exchange failed", err)
		}
		for _, rm := range recv {
			var gids []objmgr.GID
			if err := decodeGob(rm.Chunk(), &gids); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeProtocol, "xfer: decode pruning set failed", err)
			}
			for _, g := range gids {
				if _, ok := e.deleteCmds[g]; ok {
					pruned[g] = true
				}
			}
		}
	}

	// 3. Coupling-closure estimate, optimistic: final truth is
	// settled once priority merges (step 8) are known.
	for _, k := range copyOrder {
		cmd := e.copyCmds[k]
		owners := e.om.InfoProcListRange(cmd.Hdr, true)
		for _, o := range owners {
			if o.Proc != cmd.Dest {
				outCoupling[cmd.Dest] = append(outCoupling[cmd.Dest], couplingNotice{GID: cmd.Hdr.GID, Kind: cplAdd, Proc: o.Proc, Prio: o.Prio})
			}
			if o.Proc != e.om.Rank() && o.Proc != cmd.Dest {
				outCoupling[o.Proc] = append(outCoupling[o.Proc], couplingNotice{GID: cmd.Hdr.GID, Kind: cplAdd, Proc: cmd.Dest, Prio: cmd.Prio})
			}
		}
	}

	// 4 & 6. Plan and pack one message per destination.
	sendBatches := make(map[int]*objectBatch)
	for _, k := range copyOrder {
		cmd := e.copyCmds[k]
		desc, ok := e.descriptors[cmd.Hdr.Type]
		if !ok {
			return nil, xerrors.New(xerrors.CodeInvariant, "xfer: no type descriptor registered for send")
		}
		obj, ok := e.objects[cmd.Hdr.GID]
		if !ok {
			return nil, xerrors.New(xerrors.CodeInvariant, "xfer: object body not tracked for transfer")
		}
		if cmd.Size != 0 && cmd.Size != desc.Size && e.warnVarSizeObj {
			e.log.Warn("XferCopyObjX: size differs from declared type size", "gid", cmd.Hdr.GID, "declared", desc.Size, "given", cmd.Size)
		}

		if h := e.handlers.Get(cmd.Hdr.Type); h != nil && h.XferCopy != nil {
			h.XferCopy(obj, cmd.Dest, cmd.Prio,
				func(dep any, dest int, prio objmgr.Priority) {
					if e.headerOf == nil {
						return
					}
					if hdr := e.headerOf(dep); hdr != nil {
						e.Track(hdr, dep)
						_ = e.XferCopyObj(hdr, dest, prio)
					}
				},
				func(cnt int, dataType int32) { _ = e.XferAddData(cnt, dataType) },
			)
		}

		wo := wireObject{
			GID:     cmd.Hdr.GID,
			Type:    cmd.Hdr.Type,
			Level:   cmd.Hdr.Level,
			Prio:    cmd.Prio,
			Payload: desc.Marshal(obj),
			Refs:    desc.RefGIDs(obj),
		}
		for _, ad := range cmd.AddData {
			var data []byte
			if desc.Gather != nil {
				data = desc.Gather(obj, ad.DataType, ad.Count)
			}
			wo.AddData = append(wo.AddData, wireAddData{DataType: ad.DataType, Count: ad.Count, Sizes: ad.Sizes, Data: data})
		}

		if _, err := e.om.AddCoupling(cmd.Hdr, cmd.Dest, cmd.Prio); err != nil {
			e.log.Warn("xfer: failed registering local coupling to destination", "gid", cmd.Hdr.GID, "dest", cmd.Dest, "error", err.Error())
		}

		batch := sendBatches[cmd.Dest]
		if batch == nil {
			batch = &objectBatch{}
			sendBatches[cmd.Dest] = batch
		}
		batch.Objects = append(batch.Objects, wo)
		stats.Sent++
	}

	dests := make([]int, 0, len(sendBatches))
	for dest := range sendBatches {
		dests = append(dests, dest)
	}
	encoded := e.packPool.ExecuteFunc(ctx, dests, func(_ context.Context, dest int) ([]byte, error) {
		return encodeGob(*sendBatches[dest]), nil
	})
	for i, dest := range dests {
		m := e.layer.NewSendMsg(dest, msgTypeObjects)
		putChunk(m, encoded[i].Result)
		m.Freeze()
	}

	recvObjMsgs, err := e.layer.Communicate(ctx, msgTypeObjects)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProtocol, "xfer: object exchange failed", err)
	}

	// 5. Local deletes first (XFER-M1: suppress a pending prio-change
	// on the same gid; pruned deletes are skipped entirely, keeping
	// the object as a cache for pointer reachability).
	for _, g := range deleteOrder {
		if pruned[g] {
			stats.Pruned++
			if hdr, ok := e.headers[g]; ok {
				hdr.Pruned = true
			}
			continue
		}
		cmd := e.deleteCmds[g]
		if cmd == nil {
			continue
		}
		delete(e.prioCmds, g)

		hdr := cmd.Hdr
		obj := e.objects[g]
		h := e.handlers.Get(hdr.Type)
		if h != nil && h.XferDelete != nil {
			h.XferDelete(obj)
		}
		for _, o := range e.om.InfoProcListRange(hdr, false) {
			outCoupling[o.Proc] = append(outCoupling[o.Proc], couplingNotice{GID: g, Kind: cplDel, Proc: e.om.Rank()})
		}
		e.om.DisposeCouplingList(hdr)
		e.Untrack(hdr)
		e.handlers.RunDestructor(hdr.Type, obj)
		stats.Deleted++
	}

	// 7. Local priority changes (delete side effects already folded
	// into the loop above).
	for _, g := range prioOrder {
		cmd := e.prioCmds[g]
		if cmd == nil {
			continue
		}
		hdr := cmd.Hdr
		old := hdr.Prio
		if obj, ok := e.objects[g]; ok {
			e.handlers.RunSetPriority(hdr.Type, obj, old, cmd.Prio)
		}
		hdr.Prio = cmd.Prio
		for _, o := range e.om.InfoProcListRange(hdr, false) {
			outCoupling[o.Proc] = append(outCoupling[o.Proc], couplingNotice{GID: g, Kind: cplMod, Proc: e.om.Rank(), Prio: cmd.Prio})
		}
		stats.PrioChanged++
	}

	// 8. Receive and accept. Collisions between objects of the same
	// gid (whether arriving in the same message or across several)
	// are resolved by PriorityMerge; because every reference is
	// carried and resolved by gid rather than by per-message pointer
	// identity, there is nothing further to propagate to an
	// "OTHERMSG" twin once a winner is chosen here.
	winners := make(map[objmgr.GID]wireObject)
	for _, rm := range recvObjMsgs {
		var batch objectBatch
		if err := decodeGob(rm.Chunk(), &batch); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeProtocol, "xfer: decode object batch failed", err)
		}
		for _, wo := range batch.Objects {
			if existing, ok := winners[wo.GID]; ok {
				winners[wo.GID] = e.resolveCollisionWire(existing, wo)
				continue
			}
			winners[wo.GID] = wo
		}
	}

	var accepted []acceptedObject
	for _, wo := range winners {
		desc, ok := e.descriptors[wo.Type]
		if !ok {
			return nil, xerrors.New(xerrors.CodeInvariant, "xfer: no type descriptor for received object")
		}

		if localHdr, ok := e.headers[wo.GID]; ok {
			localObj := e.objects[wo.GID]
			oldPrio := localHdr.Prio
			winner := e.merge(wo.Type, localHdr.Prio, wo.Prio)
			newness := handlers.NotNew
			if pruned[wo.GID] {
				newness = handlers.PrunedNew
			} else if winner != localHdr.Prio {
				newness = handlers.PartNew
			}
			if winner == wo.Prio && winner != oldPrio {
				desc.Overwrite(localObj, desc.Unmarshal(wo.Payload))
			}
			localHdr.Prio = winner
			accepted = append(accepted, acceptedObject{hdr: localHdr, obj: localObj, newness: newness, oldPrio: oldPrio, wo: wo})
			stats.Received++
			continue
		}

		obj := desc.Unmarshal(wo.Payload)
		hdr := e.om.NewHeader(wo.GID, wo.Type, wo.Level, wo.Prio)
		e.Track(hdr, obj)
		e.handlers.RunLDataConstructor(wo.Type, obj)
		accepted = append(accepted, acceptedObject{hdr: hdr, obj: obj, newness: handlers.TotalNew, wo: wo})
		stats.Received++
	}

	// 9 & 10. Localize every reference by gid. Two logical passes are
	// unnecessary here (unlike a symbol-table/offset scheme) since a
	// gid lookup against e.objects always finds whichever object (old
	// or freshly accepted) now owns that identity.
	for _, a := range accepted {
		desc := e.descriptors[a.wo.Type]
		if desc.RefGIDs == nil || desc.InstallRefs == nil {
			continue
		}
		resolved := make([]any, len(a.wo.Refs))
		for i, g := range a.wo.Refs {
			resolved[i] = e.objects[g]
		}
		merging := a.newness != handlers.TotalNew
		if collide := desc.InstallRefs(a.obj, resolved, merging); collide && e.warnRefCollision {
			e.log.Warn("xfer: reference collision during merge localize", "gid", a.hdr.GID)
		}
	}

	// 11. Consistency handlers.
	for _, a := range accepted {
		desc := e.descriptors[a.wo.Type]
		if desc.Scatter != nil {
			for _, ad := range a.wo.AddData {
				desc.Scatter(a.obj, ad.DataType, ad.Count, ad.Data)
			}
		}
		if a.newness == handlers.TotalNew {
			e.handlers.RunUpdate(a.wo.Type, a.obj)
		} else {
			e.handlers.RunSetPriority(a.wo.Type, a.obj, a.oldPrio, a.hdr.Prio)
		}
		e.handlers.RunObjMkCons(a.wo.Type, a.obj, a.newness)
	}

	// 12. Compress and exchange the coupling message.
	for dest, notices := range outCoupling {
		m := e.layer.NewSendMsg(dest, msgTypeCoupling)
		putChunk(m, encodeGob(couplingBatch{Notices: notices}))
		m.Freeze()
	}
	recvCpl, err := e.layer.Communicate(ctx, msgTypeCoupling)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProtocol, "xfer: coupling exchange failed", err)
	}
	for _, rm := range recvCpl {
		var batch couplingBatch
		if err := decodeGob(rm.Chunk(), &batch); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeProtocol, "xfer: decode coupling batch failed", err)
		}
		for _, n := range batch.Notices {
			hdr, ok := e.headers[n.GID]
			if !ok {
				continue
			}
			switch n.Kind {
			case cplAdd:
				if _, err := e.om.AddCoupling(hdr, n.Proc, n.Prio); err != nil {
					e.log.Warn("xfer: add coupling failed", "gid", n.GID, "proc", n.Proc, "error", err.Error())
				}
			case cplMod:
				if _, err := e.om.ModCoupling(hdr, n.Proc, n.Prio); err != nil {
					if _, err2 := e.om.AddCoupling(hdr, n.Proc, n.Prio); err2 != nil {
						e.log.Warn("xfer: mod coupling failed", "gid", n.GID, "proc", n.Proc, "error", err2.Error())
					}
				}
			case cplDel:
				e.om.DelCoupling(hdr, n.Proc)
			}
		}
	}

	// 13. Rebuild interfaces from the now-settled coupling state.
	if e.iface != nil && e.typeOf != nil {
		e.iface.IFAllFromScratch(e.typeOf)
	}

	e.copyCmds = make(map[copyKey]*copyCmd)
	e.copyOrder = nil
	e.lastCopy = nil
	e.deleteCmds = make(map[objmgr.GID]*deleteCmd)
	e.deleteOrder = nil
	e.prioCmds = make(map[objmgr.GID]*prioCmd)
	e.prioOrder = nil

	return stats, nil
}

func (e *Engine) resolveCollisionWire(a, b wireObject) wireObject {
	if e.merge(a.Type, a.Prio, b.Prio) == a.Prio {
		return a
	}
	return b
}
