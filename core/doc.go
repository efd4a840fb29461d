// Package core contains the gateway contracts: credentials and their
// lifecycle, the operation registry, the dispatcher and the response
// normalizer. Drive, transport and storage adapters depend on this package;
// core must not depend on any of them.
package core
