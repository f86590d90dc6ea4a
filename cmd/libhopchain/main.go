//go:build linux && cgo

// Package main builds libhopchain.so, the LD_PRELOAD shared library
// that implements spec.md §9's symbol interposition: it overrides
// connect, close, gethostbyname, gethostbyaddr, getaddrinfo and
// freeaddrinfo so that an unmodified dynamically-linked binary is
// routed through the configured proxy chain without being recompiled.
//
// Configuration arrives once, at first hook entry, via the
// HOPCHAIN_CONFIG environment variable (internal/config's JSON blob
// format); internal/hook.State does the actual decision-making and
// internal/chain does the dialing. This file's job is narrowly the
// glue between libc's C calling convention and that Go decision logic:
// resolving the real symbols via dlsym, converting wire structs,
// fabricating DNS answers, and writing errno back to the caller.
package main

/*
#cgo LDFLAGS: -ldl -lpthread

#define _GNU_SOURCE
#include <dlfcn.h>
#include <errno.h>
#include <netdb.h>
#include <netinet/in.h>
#include <pthread.h>
#include <stdlib.h>
#include <string.h>
#include <sys/socket.h>
#include <sys/types.h>

static int (*real_connect)(int, const struct sockaddr *, socklen_t);
static int (*real_close)(int);
static struct hostent *(*real_gethostbyname)(const char *);
static struct hostent *(*real_gethostbyaddr)(const void *, socklen_t, int);
static int (*real_getaddrinfo)(const char *, const char *, const struct addrinfo *, struct addrinfo **);
static void (*real_freeaddrinfo)(struct addrinfo *);

static pthread_once_t hopchain_resolve_once = PTHREAD_ONCE_INIT;

static void hopchain_resolve_symbols(void)
{
	real_connect = dlsym(RTLD_NEXT, "connect");
	real_close = dlsym(RTLD_NEXT, "close");
	real_gethostbyname = dlsym(RTLD_NEXT, "gethostbyname");
	real_gethostbyaddr = dlsym(RTLD_NEXT, "gethostbyaddr");
	real_getaddrinfo = dlsym(RTLD_NEXT, "getaddrinfo");
	real_freeaddrinfo = dlsym(RTLD_NEXT, "freeaddrinfo");
}

static void hopchain_ensure_resolved(void)
{
	pthread_once(&hopchain_resolve_once, hopchain_resolve_symbols);
}

// hopchain_guard is a thread-local re-entry flag. Go's own dialing
// inside the chain engine never runs through these interposed symbols
// (it issues raw syscalls, not libc calls), so nothing in this binary
// should ever observe the guard already armed; it is kept purely as
// the explicit defense-in-depth spec.md §9 calls for.
static __thread int hopchain_guard;

static int hopchain_guard_armed(void) { return hopchain_guard != 0; }
static void hopchain_guard_acquire(void) { hopchain_guard = 1; }
static void hopchain_guard_release(void) { hopchain_guard = 0; }

static void hopchain_set_errno(int e) { errno = e; }

static int hopchain_real_connect(int fd, const struct sockaddr *addr, socklen_t len)
{
	hopchain_ensure_resolved();
	return real_connect(fd, addr, len);
}

static int hopchain_real_close(int fd)
{
	hopchain_ensure_resolved();
	return real_close(fd);
}

// hopchain_extract_ipv4 pulls sin_addr/sin_port out of a sockaddr the
// caller handed to connect(), reporting failure for anything that
// isn't a full-size AF_INET sockaddr (AF_INET6 and AF_UNIX are always
// passed through untouched).
static int hopchain_extract_ipv4(const struct sockaddr *addr, socklen_t len, uint32_t *ip_be, uint16_t *port_be)
{
	const struct sockaddr_in *sin;

	if (addr == NULL || len < sizeof(struct sockaddr_in) || addr->sa_family != AF_INET)
		return -1;

	sin = (const struct sockaddr_in *)addr;
	*ip_be = sin->sin_addr.s_addr;
	*port_be = sin->sin_port;
	return 0;
}

// hopchain_dial_real connects fd directly via the real connect(), for
// the pass-through decision path.
static int hopchain_dial_real(int fd, const struct sockaddr *addr, socklen_t len)
{
	return hopchain_real_connect(fd, addr, len);
}

// Static, non-reentrant gethostbyname/gethostbyaddr result buffers,
// mirroring glibc's own classic (non _r) behaviour: the result is only
// valid until the next call on the same thread, and callers must not
// free it.
static struct hostent hopchain_hostent;
static char *hopchain_addr_list[2];
static struct in_addr hopchain_in_addr;
static char hopchain_name_buf[256];

static struct hostent *hopchain_build_hostent(const char *name, uint32_t ip_be)
{
	strncpy(hopchain_name_buf, name, sizeof(hopchain_name_buf) - 1);
	hopchain_name_buf[sizeof(hopchain_name_buf) - 1] = '\0';

	hopchain_in_addr.s_addr = ip_be;
	hopchain_addr_list[0] = (char *)&hopchain_in_addr;
	hopchain_addr_list[1] = NULL;

	hopchain_hostent.h_name = hopchain_name_buf;
	hopchain_hostent.h_aliases = NULL;
	hopchain_hostent.h_addrtype = AF_INET;
	hopchain_hostent.h_length = sizeof(struct in_addr);
	hopchain_hostent.h_addr_list = hopchain_addr_list;
	return &hopchain_hostent;
}

// hopchain_build_addrinfo allocates a single AF_INET addrinfo node the
// same way getaddrinfo(3) would for a plain host:port lookup, using
// calloc so hopchain_free_addrinfo can release it with plain free();
// the exported freeaddrinfo routes fabricated results there and never
// hands them to libc's freeaddrinfo.
static struct addrinfo *hopchain_build_addrinfo(uint32_t ip_be, uint16_t port_be, int socktype)
{
	struct addrinfo *ai = calloc(1, sizeof(struct addrinfo));
	struct sockaddr_in *sin = calloc(1, sizeof(struct sockaddr_in));
	if (ai == NULL || sin == NULL) {
		free(ai);
		free(sin);
		return NULL;
	}

	sin->sin_family = AF_INET;
	sin->sin_addr.s_addr = ip_be;
	sin->sin_port = port_be;

	ai->ai_family = AF_INET;
	ai->ai_socktype = socktype ? socktype : SOCK_STREAM;
	ai->ai_protocol = IPPROTO_TCP;
	ai->ai_addrlen = sizeof(struct sockaddr_in);
	ai->ai_addr = (struct sockaddr *)sin;
	ai->ai_canonname = NULL;
	ai->ai_next = NULL;
	return ai;
}

static void hopchain_free_addrinfo(struct addrinfo *ai)
{
	struct addrinfo *next;
	while (ai != NULL) {
		next = ai->ai_next;
		free(ai->ai_addr);
		free(ai);
		ai = next;
	}
}
*/
import "C"

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/hopchain/hopchain/internal/classify"
	"github.com/hopchain/hopchain/internal/config"
	"github.com/hopchain/hopchain/internal/hook"
)

var globalState hook.State

// fabricated tracks addrinfo chains this library allocated, so
// freeaddrinfo can route fabricated results to hopchain_free_addrinfo
// and everything else to the real freeaddrinfo. A libc-allocated
// addrinfo* and one of ours never collide: the caller always frees the
// exact pointer getaddrinfo(3) handed it.
var (
	fabricatedMu sync.Mutex
	fabricated   = map[uintptr]bool{}
)

func markFabricated(p *C.struct_addrinfo) {
	fabricatedMu.Lock()
	fabricated[uintptr(unsafe.Pointer(p))] = true
	fabricatedMu.Unlock()
}

func takeFabricated(p *C.struct_addrinfo) bool {
	key := uintptr(unsafe.Pointer(p))
	fabricatedMu.Lock()
	defer fabricatedMu.Unlock()
	if fabricated[key] {
		delete(fabricated, key)
		return true
	}
	return false
}

// ensureInit runs globalState.Init exactly once (sync.Once inside State)
// and reports whether the process is configured to chain connections.
// A present-but-invalid blob is fatal: spec.md §6/§7 require the target
// to abort with a diagnostic before any hook acts, not degrade into
// per-call pass-through, so that case exits the process here rather
// than returning to the caller.
func ensureInit() bool {
	blob, present := os.LookupEnv(config.EnvVar)
	var blobBytes []byte
	if present {
		blobBytes = []byte(blob)
	}
	err := globalState.Init(blobBytes, present)
	if err == nil {
		return true
	}
	if err == hook.ErrNoBlob {
		return false
	}
	fmt.Fprintln(os.Stderr, "hopchain: "+err.Error())
	os.Exit(1)
	panic("unreachable")
}

//export connect
func connect(fd C.int, sa *C.struct_sockaddr, salen C.socklen_t) C.int {
	if C.hopchain_guard_armed() != 0 {
		return C.hopchain_dial_real(fd, sa, salen)
	}

	if !ensureInit() {
		return C.hopchain_dial_real(fd, sa, salen)
	}

	var ipBE C.uint32_t
	var portBE C.uint16_t
	if C.hopchain_extract_ipv4(sa, salen, &ipBE, &portBE) != 0 {
		return C.hopchain_dial_real(fd, sa, salen)
	}

	target, err := addressFromBE(uint32(ipBE), uint16(portBE))
	if err != nil {
		return C.hopchain_dial_real(fd, sa, salen)
	}

	// fail writes one structured warning for a failed intercepted
	// connect, then sets errno from the failure class.
	fail := func(err error) C.int {
		entry := globalState.Logger().WithField("target", target.String())
		if ce, ok := classify.AsClassified(err); ok {
			entry = entry.WithFields(ce.LogrusFields())
		}
		entry.Warn(err.Error())
		C.hopchain_set_errno(C.int(hook.ErrnoFor(err)))
		return -1
	}

	decision, resolved, err := globalState.Decide(target)
	if err != nil {
		return fail(err)
	}
	if decision == hook.DecisionPassthrough {
		return C.hopchain_dial_real(fd, sa, salen)
	}

	C.hopchain_guard_acquire()
	conn, err := globalState.Connect(resolved)
	C.hopchain_guard_release()
	if err != nil {
		return fail(err)
	}

	if err := unix.Dup2(conn.Fd(), int(fd)); err != nil {
		conn.Close()
		C.hopchain_set_errno(C.int(unix.EIO))
		return -1
	}
	conn.Close()
	return 0
}

//export close
func close(fd C.int) C.int {
	ensureInit()
	return C.hopchain_real_close(fd)
}

//export gethostbyname
func gethostbyname(name *C.char) *C.struct_hostent {
	initialized := ensureInit()
	if !shouldFabricateDNS(initialized, globalState.Config()) {
		C.hopchain_ensure_resolved()
		return C.real_gethostbyname(name)
	}

	host := C.GoString(name)
	ip, err := globalState.DNS().Intern(host)
	if err != nil {
		C.hopchain_set_errno(C.int(unix.ENOMEM))
		return nil
	}

	return C.hopchain_build_hostent(name, C.uint32_t(ipv4ToBE(ip)))
}

//export gethostbyaddr
func gethostbyaddr(addrPtr unsafe.Pointer, length C.socklen_t, format C.int) *C.struct_hostent {
	initialized := ensureInit()
	if format != C.AF_INET || length != 4 {
		C.hopchain_ensure_resolved()
		return C.real_gethostbyaddr(addrPtr, length, format)
	}

	var ip [4]byte
	copy(ip[:], unsafe.Slice((*byte)(addrPtr), 4))

	if !shouldFabricateDNS(initialized, globalState.Config()) || !globalState.DNS().Contains(ip) {
		C.hopchain_ensure_resolved()
		return C.real_gethostbyaddr(addrPtr, length, format)
	}

	host, ok := globalState.DNS().Lookup(ip)
	if !ok {
		C.hopchain_set_errno(C.int(unix.ENOENT))
		return nil
	}

	cname := C.CString(host)
	defer C.free(unsafe.Pointer(cname))
	return C.hopchain_build_hostent(cname, C.uint32_t(ipv4ToBE(ip)))
}

//export getaddrinfo
func getaddrinfo(node, service *C.char, hints *C.struct_addrinfo, res **C.struct_addrinfo) C.int {
	initialized := ensureInit()
	if !shouldFabricateDNS(initialized, globalState.Config()) || node == nil {
		C.hopchain_ensure_resolved()
		return C.real_getaddrinfo(node, service, hints, res)
	}

	host := C.GoString(node)
	if net.ParseIP(host) != nil {
		C.hopchain_ensure_resolved()
		return C.real_getaddrinfo(node, service, hints, res)
	}

	var port uint16
	if service != nil {
		if p, perr := strconv.ParseUint(C.GoString(service), 10, 16); perr == nil {
			port = uint16(p)
		}
	}

	ip, err := globalState.DNS().Intern(host)
	if err != nil {
		return C.EAI_MEMORY
	}

	socktype := C.int(0)
	if hints != nil {
		socktype = hints.ai_socktype
	}

	ai := C.hopchain_build_addrinfo(C.uint32_t(ipv4ToBE(ip)), C.uint16_t(portToBE(port)), socktype)
	if ai == nil {
		return C.EAI_MEMORY
	}
	markFabricated(ai)
	*res = ai
	return 0
}

//export freeaddrinfo
func freeaddrinfo(ai *C.struct_addrinfo) {
	ensureInit()
	if takeFabricated(ai) {
		C.hopchain_free_addrinfo(ai)
		return
	}
	C.hopchain_ensure_resolved()
	C.real_freeaddrinfo(ai)
}

func main() {}
