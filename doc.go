/*

Revcache is a content-addressable cache of file revision blobs fetched
from a central source-control server.  A store decides where a blob
lives on disk, whether it is present and intact, how to write it
safely, and how to reclaim space once the cache grows past a
configured limit.  Several processes owned by several users may read
and write one shared store concurrently; the store takes no locks of
its own and instead leans on the atomicity of individual create,
rename, and unlink calls.

Vocabulary:

- fingerprint: 20-byte hash identifying the exact bytes of one blob
	revision; assigned by the server, opaque to the store
- namehash: 20-byte sha1 of a file's logical path; shards the shared
	key space so many repos can share one cache root
- storage key: path of a blob relative to the store root; shared
	stores nest reponame/namehash[:2]/namehash[2:]/hex(fingerprint),
	local stores nest the logical name directly
- blob record: disk file holding <header><content><fingerprint>;
	the trailing fingerprint must match the file's basename
- backup: copy of a blob made before overwrite, suffixed "_old";
	reclaimed by Compact once orphaned
- quarantine: a corrupt blob renamed with a ".corrupt" suffix so
	lookups treat it as absent but the bytes survive for post-mortem
- keep set: storage keys that the first GC pass must not delete,
	supplied by whoever knows what is still referenced
- ledger: repack bookkeeping produced by MarkLedger and consumed by
	Cleanup; the repack subsystem itself lives elsewhere

*/

package revcache
