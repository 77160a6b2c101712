// Package server exposes an edgekv.KV over HTTP.
//
// Routes:
//
//	GET    /kv/<key>?type=text|json|binary|stream&metadata=1
//	PUT    /kv/<key>?expiration=<unix>&expiration_ttl=<seconds>
//	POST   /kv/<key>   (same as PUT)
//	DELETE /kv/<key>
//	GET    /kv?prefix=&limit=&cursor=
//	GET    /-/health
//
// Reads and lists carry X-Cache-Status (MISS, HIT or REVALIDATED). Adding
// wait=1 to any KV request holds the response until the background edge
// writes it triggered have finished.
package server
