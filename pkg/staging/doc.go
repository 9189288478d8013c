// Package staging implements the recursive streaming grammar used to
// move directory trees, files, and symlinks between the manager and a
// worker over a wire.Conn (spec §4.7):
//
//	dir <url-encoded-name>\n
//	  <items recursively>
//	end\n
//	file <url-encoded-name> <size> 0<mode-octal>\n
//	  <size bytes>
//	symlink <url-encoded-name> <target-length>\n
//	  <target-length bytes of link target>
//	missing <url-encoded-name> <errno>\n
//
// A missing entry does not abort the stream; it marks one output as
// missing and the caller keeps reading the remaining items. Watched
// output files additionally receive incremental `update` frames while
// the task is still running (spec §4.7).
package staging
